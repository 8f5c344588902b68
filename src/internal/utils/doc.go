// Package utils provides small file and path helpers shared by the other packages.
package utils
