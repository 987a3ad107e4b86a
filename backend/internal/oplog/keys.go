package oplog

import "fmt"

// 键语义：
// - streamKey(docID): 一篇文档的操作流（Redis Stream，只追加）
//   stream 自己分配的条目 ID 只用于断点续读，去重一律认操作自身的 ID。

const keyStreamFmt = "oplog:doc:%s"

func streamKey(docID string) string { return fmt.Sprintf(keyStreamFmt, docID) }
