package textutil

import "strings"

// trademarkReplacer drops the glyphs storefronts append to product names.
var trademarkReplacer = strings.NewReplacer(
	"™", "",
	"©", "",
	"®", "",
)

// CleanTitle removes trademark glyphs and collapses runs of whitespace.
func CleanTitle(title string) string {
	return strings.Join(strings.Fields(trademarkReplacer.Replace(title)), " ")
}
