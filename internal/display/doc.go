// Package display renders user-facing terminal messages for the doctest CLI:
// collection progress for the list command and warnings about documents
// that could not be run.
//
// # Progress Indicators
//
//	progress := display.NewProgressIndicator(os.Stdout, len(paths))
//	progress.Start()
//	for _, path := range paths {
//	    group, _ := s.Collect(path)
//	    progress.Step(path, len(group.Examples))
//	}
//	progress.Complete()
//
// # Warnings
//
//	if w := display.WarnDocumentErrors(result); w != nil {
//	    w.Display(os.Stderr)
//	}
//
// Colors come from fatih/color and are dropped automatically when the output
// is not a terminal or NO_COLOR is set. All functions accept io.Writer for
// testability.
package display
