//go:build !unix

package health

// freeSpace is not measured on this platform.
func freeSpace(string) (int64, error) {
	return 0, nil
}
