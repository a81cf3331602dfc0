//go:build !unix

package deeplink

import "os"

// No advisory locking here: every process becomes the primary instance.
func tryLock(*os.File) error { return nil }

func unlock(*os.File) error { return nil }
