package prefs

type opKind int

const (
	opSet opKind = iota + 1
	opRemove
	opSetStringSet
)

type op struct {
	kind    opKind
	key     string
	value   string
	members []string
}

// Batch はEditで1トランザクションとして適用される変更の集まり。
type Batch struct {
	ops []op
}

// Set はキーに値を書き込む。
func (b *Batch) Set(key, value string) {
	b.ops = append(b.ops, op{kind: opSet, key: key, value: value})
}

// Remove はキー（文字列セットを含む）を削除する。
func (b *Batch) Remove(key string) {
	b.ops = append(b.ops, op{kind: opRemove, key: key})
}

// SetStringSet は文字列セット全体を置き換える。
// 重複要素は最初の1つだけが残り、順序は保持される。
func (b *Batch) SetStringSet(key string, members []string) {
	seen := make(map[string]struct{}, len(members))
	unique := make([]string, 0, len(members))
	for _, m := range members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		unique = append(unique, m)
	}
	b.ops = append(b.ops, op{kind: opSetStringSet, key: key, members: unique})
}
