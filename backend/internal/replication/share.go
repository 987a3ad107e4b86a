package replication

import (
	"fmt"
	"net/url"
	"strings"
)

// 分享链接是 documentID 的确定性映射：同一个 ID 永远得到同一个链接，
// 任何客户端都能从链接解析回同一个日志/presence 命名空间。
const shareBase = "https://flowly.app/d/"

// ShareLink 生成文档的分享链接。
func ShareLink(documentID string) string {
	return shareBase + url.PathEscape(documentID)
}

// ParseShareLink 从分享链接解析出 documentID。
func ParseShareLink(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse share link: %w", err)
	}
	const prefix = "/d/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", fmt.Errorf("not a share link: %q", link)
	}
	id, err := url.PathUnescape(strings.TrimPrefix(u.Path, prefix))
	if err != nil || id == "" {
		return "", fmt.Errorf("invalid share link: %q", link)
	}
	return id, nil
}
