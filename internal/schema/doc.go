// Package schema holds the contracts shared between channels and the recall core.
package schema
