package config

import (
	"strings"
	"unicode/utf8"
)

// Longest stored media file name, in bytes. Leaves room for directory on
// file systems limiting whole path.
const maxFileNameLen = 160

const badFileName = "_bad_file_name_"

// CleanFileName makes in usable as a single file name in media directory:
// characters not allowed by platform are removed, leading dots are dropped
// and overly long names are shortened keeping extension.
func CleanFileName(in string) string {
	out := strings.TrimLeft(strings.Map(func(sym rune) rune {
		if sym == 0 || strings.ContainsRune(forbiddenChars, sym) {
			return -1
		}
		return sym
	}, in), ". ")
	if len(out) == 0 {
		return badFileName
	}
	return shorten(out, maxFileNameLen)
}

func shorten(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	ext := ""
	if i := strings.LastIndexByte(name, '.'); i > 0 && len(name)-i <= 10 {
		name, ext = name[:i], name[i:]
	}
	cut := limit - len(ext)
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut] + ext
}
