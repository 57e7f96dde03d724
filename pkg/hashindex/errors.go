package hashindex

import "errors"

// ErrDirectoryFull is returned when split_insert needs to grow past the
// directory's maximum depth and cannot create room for the new key.
var ErrDirectoryFull = errors.New("hashindex: directory at max depth, cannot split further")

// ErrWrongPageType is returned when a bucket or directory page is loaded
// from a Page whose Type doesn't match what that view expects.
var ErrWrongPageType = errors.New("hashindex: unexpected page type for hash index view")
