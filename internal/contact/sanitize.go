package contact

import "strings"

var angleBrackets = strings.NewReplacer("<", "", ">", "")

// SanitizeFormData 递归清洗表单数据：去掉所有字符串值里的尖括号并修剪
// 首尾空白，嵌套对象同样处理。这是浅层的 XSS 缓解，不做 HTML 感知的解析。
func SanitizeFormData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		out[key] = sanitizeValue(value)
	}
	return out
}

func sanitizeValue(value any) any {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(angleBrackets.Replace(v))
	case map[string]any:
		return SanitizeFormData(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return value
	}
}
