// Package fsutil contains utilities for working with the file system.
package fsutil

import (
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ExpandHome replaces a leading "~" (the current user) or "~name" (the user "name") in filePath by the
// home directory of the user. Other paths are returned unchanged.
//
// The special path "-", used by command line tools for the standard input or output, is also returned unchanged.
func ExpandHome(filePath string) (string, error) {
	if !strings.HasPrefix(filePath, "~") {
		return filePath, nil
	}
	userName, rest, _ := strings.Cut(filePath[1:], "/")
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", filePath)
	}
	return filepath.Join(usr.HomeDir, rest), nil
}
