package api

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

func isValidOwnerAssetObjectKey(userID uint, key string) bool {
	if key == "" || !utf8.ValidString(key) {
		return false
	}
	expected := fmt.Sprintf("portfolio-assets/%d/", userID)
	if !strings.HasPrefix(key, expected) {
		return false
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\\") || strings.Contains(key, "//") {
		return false
	}
	if len(key) > 200 {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(key))
	for _, suffix := range []string{".png", ".jpg", ".jpeg", ".webp", ".svg", ".pdf"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
