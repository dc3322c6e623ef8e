// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// NewDataset wraps a row-major slice of values into a Dataset.
// rows: number of observations, names: one per column
func NewDataset(names []string, rows int, data []float64) (*Dataset, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("dataset needs at least one column")
	}
	if rows <= 0 {
		return nil, fmt.Errorf("dataset needs at least one row")
	}
	if len(data) != rows*len(names) {
		return nil, fmt.Errorf("dataset has %d values, expected %d x %d", len(data), rows, len(names))
	}
	return &Dataset{
		Data:     mat.NewDense(rows, len(names), data),
		VarNames: append([]string(nil), names...),
	}, nil
}

// Rows returns the number of observations
func (ds *Dataset) Rows() int {
	if ds == nil || ds.Data == nil {
		return 0
	}
	r, _ := ds.Data.Dims()
	return r
}

// Index returns the column position of name
func (ds *Dataset) Index(name string) (int, bool) {
	for i, n := range ds.VarNames {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// Column returns a copy of the named column
func (ds *Dataset) Column(name string) ([]float64, error) {
	j, ok := ds.Index(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	return mat.Col(nil, j, ds.Data), nil
}

// WithColumn returns a copy of the dataset with the named column replaced.
func (ds *Dataset) WithColumn(name string, values []float64) (*Dataset, error) {
	j, ok := ds.Index(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	if len(values) != ds.Rows() {
		return nil, fmt.Errorf("column %q: got %d values for %d rows", name, len(values), ds.Rows())
	}
	out := mat.DenseCopyOf(ds.Data)
	out.SetCol(j, values)
	return &Dataset{Data: out, VarNames: ds.VarNames}, nil
}

// Resample builds a new dataset from the given row indices.
// Indices may repeat. The receiver is not modified.
func (ds *Dataset) Resample(idx []int) *Dataset {
	_, K := ds.Data.Dims()
	out := mat.NewDense(len(idx), K, nil)
	for i, r := range idx {
		out.SetRow(i, ds.Data.RawRowView(r))
	}
	return &Dataset{Data: out, VarNames: ds.VarNames}
}

// Len returns the number of entries
func (v NamedVector) Len() int { return len(v.Values) }

// Get returns the value stored under name
func (v NamedVector) Get(name string) (float64, bool) {
	for i, n := range v.Names {
		if n == name {
			return v.Values[i], true
		}
	}
	return 0, false
}

// Clone returns a deep copy
func (v NamedVector) Clone() NamedVector {
	return NamedVector{
		Names:  append([]string(nil), v.Names...),
		Values: append([]float64(nil), v.Values...),
	}
}

// Dim returns the size of the matrix
func (c *CovarianceMatrix) Dim() int {
	if c == nil || c.Matrix == nil {
		return 0
	}
	return c.Matrix.SymmetricDim()
}

// String returns the lower-case method name
func (m Method) String() string {
	switch m {
	case MethodNone:
		return "none"
	case MethodDelta:
		return "delta"
	case MethodSimulation:
		return "simulation"
	case MethodBootstrap:
		return "bootstrap"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod maps a method name to a Method
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return MethodNone, nil
	case "delta":
		return MethodDelta, nil
	case "simulation":
		return MethodSimulation, nil
	case "bootstrap":
		return MethodBootstrap, nil
	}
	return MethodNone, invalidConfig("unknown variance method %q", s)
}

// ParseEffectType maps a name to an EffectType, empty means response
func ParseEffectType(s string) (EffectType, error) {
	switch EffectType(strings.ToLower(strings.TrimSpace(s))) {
	case "", EffectResponse:
		return EffectResponse, nil
	case EffectLink:
		return EffectLink, nil
	}
	return "", invalidConfig("unknown effect type %q", s)
}

// ParseRefitPolicy maps skip/abort to a RefitPolicy
func ParseRefitPolicy(s string) (RefitPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return RefitSkip, nil
	case "abort":
		return RefitAbort, nil
	}
	return RefitSkip, invalidConfig("unknown refit policy %q", s)
}

// String returns the term kind name
func (k TermKind) String() string {
	if k == TermLogical {
		return "logical"
	}
	return "numeric"
}

// Names returns the term names in order
func (tc TermClassification) Names() []string {
	out := make([]string, len(tc))
	for i, t := range tc {
		out[i] = t.Name
	}
	return out
}
