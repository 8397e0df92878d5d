/*
Package refs classifies git ref strings into structured kinds.

Gate policies and templates ask "is this push a tag?" through Parse instead
of comparing fixed-length prefixes, so `refs/tags/v1`, `refs/heads/main` and
`refs/pull/7/merge` are all recognised by shape.
*/
package refs
