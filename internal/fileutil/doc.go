// Package fileutil discovers the documents a run should collect examples
// from.
//
// Paths naming files are taken as is. Directories are walked and every file
// whose slash-separated path relative to the directory matches one of the
// Include patterns (doublestar syntax, DefaultInclude when empty) and none of
// the Exclude patterns is collected. Hidden directories and DefaultExcludeDirs
// are never descended into.
//
//	result, err := fileutil.Discover([]string{"docs", "README.md"}, fileutil.ScanOptions{
//	    Exclude: []string{"_build/**"},
//	})
//	if err != nil {
//	    return err
//	}
//	for _, path := range result.Files {
//	    fmt.Println(path)
//	}
//
// Unreadable entries do not abort the walk. They are collected in
// ScanResult.Errors and the scan continues.
package fileutil
