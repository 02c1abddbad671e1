package sampler

import (
	"fmt"
	"math"
	"sort"
)

// DependenceConfig specifies a target Spearman correlation matrix over a
// subset of scenario variables. Variables not listed stay independent.
// Non-PSD matrices are projected to the nearest PSD correlation matrix
// before use; the projection error is reported, never hidden.
type DependenceConfig struct {
	Variables []string    `json:"variables" yaml:"variables"`
	Matrix    [][]float64 `json:"matrix" yaml:"matrix"`
}

// Validate checks shape and entry ranges. PSD-ness is not a validation
// failure; it is corrected at sampling time.
func (c *DependenceConfig) Validate() error {
	n := len(c.Variables)
	if n == 0 {
		return fmt.Errorf("dependence config has no variables")
	}
	if len(c.Matrix) != n {
		return fmt.Errorf("dependence matrix has %d rows, want %d", len(c.Matrix), n)
	}
	for i, row := range c.Matrix {
		if len(row) != n {
			return fmt.Errorf("dependence matrix row %d has %d entries, want %d", i, len(row), n)
		}
		for j, v := range row {
			if v < -1 || v > 1 {
				return fmt.Errorf("correlation [%d][%d] = %g outside [-1, 1]", i, j, v)
			}
		}
	}
	return nil
}

// targetMatrix expands the config onto the full variable list (identity for
// unlisted variables) and converts Spearman targets to the Pearson
// correlation the Gaussian copula needs: r = 2*sin(pi*rho/6).
func (c *DependenceConfig) targetMatrix(names []string) ([][]float64, [][]float64) {
	n := len(names)
	idx := make(map[string]int, n)
	for i, name := range names {
		idx[name] = i
	}

	spearman := identity(n)
	pearson := identity(n)
	for a, va := range c.Variables {
		i, ok := idx[va]
		if !ok {
			continue // unknown variable names stay independent
		}
		for b, vb := range c.Variables {
			j, ok := idx[vb]
			if !ok || i == j {
				continue
			}
			rho := c.Matrix[a][b]
			spearman[i][j] = rho
			pearson[i][j] = 2 * math.Sin(math.Pi*rho/6)
		}
	}
	return spearman, pearson
}

func identity(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

// nearestPSD projects a symmetric matrix onto the nearest positive
// semi-definite correlation matrix: symmetrize, clip negative eigenvalues,
// rescale the diagonal back to 1.
func nearestPSD(m [][]float64) [][]float64 {
	n := len(m)
	sym := make([][]float64, n)
	for i := range sym {
		sym[i] = make([]float64, n)
		for j := range sym[i] {
			sym[i][j] = (m[i][j] + m[j][i]) / 2
		}
	}

	vals, vecs := jacobiEigen(sym)
	const floor = 1e-10
	clipped := false
	for i, v := range vals {
		if v < floor {
			vals[i] = floor
			clipped = true
		}
	}
	if !clipped {
		return sym
	}

	// Reconstruct V * diag(vals) * V^T.
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := 0; j <= i; j++ {
			s := 0.0
			for k := 0; k < n; k++ {
				s += vecs[i][k] * vals[k] * vecs[j][k]
			}
			out[i][j] = s
			out[j][i] = s
		}
	}

	// Rescale to unit diagonal so it remains a correlation matrix.
	for i := 0; i < n; i++ {
		di := math.Sqrt(out[i][i])
		if di <= 0 {
			di = 1
		}
		for j := 0; j < n; j++ {
			dj := math.Sqrt(out[j][j])
			if dj <= 0 {
				dj = 1
			}
			if i != j {
				out[i][j] /= di * dj
			}
		}
	}
	for i := 0; i < n; i++ {
		out[i][i] = 1
	}
	return out
}

// jacobiEigen computes eigenvalues and eigenvectors of a symmetric matrix
// using cyclic Jacobi rotations. Sizes here are the number of scenario
// variables (tens at most), so the O(n^3) sweep cost is irrelevant.
func jacobiEigen(m [][]float64) ([]float64, [][]float64) {
	n := len(m)
	a := make([][]float64, n)
	for i := range a {
		a[i] = append([]float64(nil), m[i]...)
	}
	v := identity(n)

	for sweep := 0; sweep < 100; sweep++ {
		off := 0.0
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				off += a[i][j] * a[i][j]
			}
		}
		if off < 1e-22 {
			break
		}
		for p := 0; p < n; p++ {
			for q := p + 1; q < n; q++ {
				if math.Abs(a[p][q]) < 1e-18 {
					continue
				}
				theta := (a[q][q] - a[p][p]) / (2 * a[p][q])
				t := 1 / (math.Abs(theta) + math.Sqrt(theta*theta+1))
				if theta < 0 {
					t = -t
				}
				c := 1 / math.Sqrt(t*t+1)
				s := t * c
				for k := 0; k < n; k++ {
					akp, akq := a[k][p], a[k][q]
					a[k][p] = c*akp - s*akq
					a[k][q] = s*akp + c*akq
				}
				for k := 0; k < n; k++ {
					apk, aqk := a[p][k], a[q][k]
					a[p][k] = c*apk - s*aqk
					a[q][k] = s*apk + c*aqk
				}
				for k := 0; k < n; k++ {
					vkp, vkq := v[k][p], v[k][q]
					v[k][p] = c*vkp - s*vkq
					v[k][q] = s*vkp + c*vkq
				}
			}
		}
	}

	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		vals[i] = a[i][i]
	}
	return vals, v
}

// cholesky returns the lower-triangular factor, or false if the matrix is
// not positive definite (callers fall back to the eigen factor).
func cholesky(m [][]float64) ([][]float64, bool) {
	n := len(m)
	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			s := m[i][j]
			for k := 0; k < j; k++ {
				s -= l[i][k] * l[j][k]
			}
			if i == j {
				if s <= 0 {
					return nil, false
				}
				l[i][i] = math.Sqrt(s)
			} else {
				l[i][j] = s / l[j][j]
			}
		}
	}
	return l, true
}

// eigenFactor returns V*sqrt(max(D,0)), a usable factor for any symmetric
// matrix, used when Cholesky declines a barely-semidefinite projection.
func eigenFactor(m [][]float64) [][]float64 {
	n := len(m)
	vals, vecs := jacobiEigen(m)
	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			ev := vals[j]
			if ev < 0 {
				ev = 0
			}
			l[i][j] = vecs[i][j] * math.Sqrt(ev)
		}
	}
	return l
}

// correlate applies the factor to each run's independent normal draws:
// z'[i] = sum_j L[i][j] * z[j].
func correlate(z [][]float64, l [][]float64) [][]float64 {
	out := make([][]float64, len(z))
	n := len(l)
	for r, row := range z {
		mixed := make([]float64, n)
		for i := 0; i < n; i++ {
			s := 0.0
			for j := 0; j < n; j++ {
				s += l[i][j] * row[j]
			}
			mixed[i] = s
		}
		out[r] = mixed
	}
	return out
}

// spearmanMatrix computes the realized rank correlation of the sampled
// values. Ranks are ordinal with ties broken by run index, matching the
// determinism rule used everywhere else in the engine.
func spearmanMatrix(values [][]float64, nvars int) [][]float64 {
	runs := len(values)
	out := identity(nvars)
	if runs < 2 {
		return out
	}

	ranks := make([][]float64, nvars)
	for j := 0; j < nvars; j++ {
		ranks[j] = rankColumn(values, j)
	}
	for i := 0; i < nvars; i++ {
		for j := i + 1; j < nvars; j++ {
			rho := pearson(ranks[i], ranks[j])
			out[i][j] = rho
			out[j][i] = rho
		}
	}
	return out
}

func rankColumn(values [][]float64, col int) []float64 {
	runs := len(values)
	order := make([]int, runs)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := values[order[a]][col], values[order[b]][col]
		if va == vb {
			return order[a] < order[b]
		}
		return va < vb
	})
	ranks := make([]float64, runs)
	for pos, idx := range order {
		ranks[idx] = float64(pos + 1)
	}
	return ranks
}

func pearson(x, y []float64) float64 {
	n := float64(len(x))
	if n < 2 {
		return 0
	}
	var sx, sy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
	}
	mx, my := sx/n, sy/n
	var cov, vx, vy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}

// frobeniusDiff is the Frobenius norm of (a - b).
func frobeniusDiff(a, b [][]float64) float64 {
	s := 0.0
	for i := range a {
		for j := range a[i] {
			d := a[i][j] - b[i][j]
			s += d * d
		}
	}
	return math.Sqrt(s)
}
