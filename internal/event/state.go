package event

import "sync"

// State は現在値を保持する観測可能な状態。
// 購読すると最初に現在値が届き、その後は変更のたびに新しい値が届く。
type State[T any] struct {
	mu     sync.Mutex
	value  T
	source *Source[T]
}

// NewState は初期値initialを持つStateを生成する。
func NewState[T any](initial T) *State[T] {
	return &State[T]{value: initial, source: NewSource[T]()}
}

// Value は現在値を返す。
func (s *State[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set は値を置き換えて購読者に通知する。
func (s *State[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.source.Publish(v)
}

// Update は現在値にfnを適用した結果で値を置き換え、新しい値を返す。
func (s *State[T]) Update(fn func(T) T) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = fn(s.value)
	s.source.Publish(s.value)
	return s.value
}

// Subscribe は現在値から始まる購読を返す。
func (s *State[T]) Subscribe() *Subscription[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source.SubscribeWith(s.value)
}

// subscribers は現在の購読者数を返す。
func (s *State[T]) subscribers() int {
	return s.source.Len()
}

// Close は全購読を終了させる。
func (s *State[T]) Close() {
	s.source.Close()
}
