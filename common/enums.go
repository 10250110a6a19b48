// Enums shared between configuration, the import pipeline and the command line.
// Generated code lives in enums_enum.go, run "go generate" after changes.
package common

//go:generate go tool go-enum --marshal --names --values

// Type of media asset a story element resource describes. Anything else found
// in a descriptor is not reconcilable.
// ENUM(image, video)
type ResourceType string

// IsMedia reports whether resource of type t could be materialized as media item.
func IsMedia(t string) bool {
	_, err := ParseResourceType(t)
	return err == nil
}

// Stage of a single import run.
// ENUM(idle, validating, extracting, reconciling, merging, installed, failed)
type ImportStage int

// Terminal reports whether s ends an import run.
func (s ImportStage) Terminal() bool {
	return s == ImportStageInstalled || s == ImportStageFailed
}
