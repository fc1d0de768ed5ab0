// Package preflight provides readiness checks for external services
// and filesystem paths that macroblock depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs failures without refusing
//     to start, so a degraded setup can still serve the surfaces that work.
//   - The CLI "macroblock status" command uses individual check functions
//     (CheckDetector, CheckDirectoryAccess) to display environment health.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
