// Package homology computes persistent homology for the two filtrations used by
// the topological feature pipeline and evaluates the functional summaries of
// the resulting diagrams.
//
// Filtrations:
//
//   - Filtration is a simplex-tree analogue: simplices are inserted with a
//     filtration value, missing faces are added implicitly, and Persistence
//     reduces the boundary matrix over the field with two elements.
//   - VietorisRips builds the Rips filtration of a Euclidean point cloud and
//     returns its degree-0 and degree-1 diagrams. Degree 0 is computed with a
//     union-find over the edges, degree 1 with persistent cohomology and
//     clearing, truncated at the enclosing radius (beyond which the complex is
//     a cone and carries no further homology).
//
// Summaries:
//
//   - BettiCurve counts the pairs alive at each sample, birth <= t < death.
//   - Landscape evaluates the k-th persistence landscape layer,
//     λ_k(t) = k-th largest of max(0, min(t-birth, death-t)).
//
// Pairs with zero persistence are never reported. Classes that never die are
// reported with Death = +Inf; callers decide whether to keep them.
package homology
