package engine

import "errors"

// ErrCompressedPageTooLarge is raised when a page's compressed form (plus
// header) does not fit back inside the fixed page data area.
var ErrCompressedPageTooLarge = errors.New("engine: compressed page exceeds page data size")
