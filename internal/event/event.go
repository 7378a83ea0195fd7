// Package event はプロセス内の型付きpublish/subscribeを提供する。
//
// 配信は「最新値優先」で行われる。購読者ごとに1要素のバッファを持ち、
// 読み出されていない古い値は新しい値で置き換えられる。発行側がブロックすることはない。
// 購読の解除は購読者の生存期間に合わせて明示的にCloseで行う。
package event

import (
	"context"
	"sync"
)

// Subscription は1購読者分の受信チャネル。
type Subscription[T any] struct {
	ch     chan T
	once   sync.Once
	cancel func()
}

// C は値を受信するチャネルを返す。
// 購読が解除されるか発行元がCloseされるとチャネルはcloseされる。
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close は購読を解除する。複数回呼んでも安全。
func (s *Subscription[T]) Close() {
	s.once.Do(s.cancel)
}

// OnClose はClose時にfnも実行するよう登録し、自身を返す。
// 購読を他者に渡す前に呼ぶこと。
func (s *Subscription[T]) OnClose(fn func()) *Subscription[T] {
	prev := s.cancel
	s.cancel = func() {
		prev()
		fn()
	}
	return s
}

// Source は型付きイベントの発行元。
type Source[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]chan T
	nextID uint64
	closed bool
}

// NewSource はSourceを生成する。
func NewSource[T any]() *Source[T] {
	return &Source[T]{subs: make(map[uint64]chan T)}
}

// Subscribe は新しい購読を登録する。
func (s *Source[T]) Subscribe() *Subscription[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribeLocked()
}

// SubscribeWith は購読を登録し、initialを最初の値として配信する。
// 登録と初期値の配信は発行と競合しない。
func (s *Source[T]) SubscribeWith(initial T) *Subscription[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.subscribeLocked()
	if !s.closed {
		offer(sub.ch, initial)
	}
	return sub
}

func (s *Source[T]) subscribeLocked() *Subscription[T] {
	ch := make(chan T, 1)
	if s.closed {
		close(ch)
		return &Subscription[T]{ch: ch, cancel: func() {}}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	return &Subscription[T]{ch: ch, cancel: func() { s.remove(id) }}
}

func (s *Source[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// Publish は全購読者に値を配信する。
func (s *Source[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		offer(ch, v)
	}
}

// Len は現在の購読者数を返す。
func (s *Source[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close は全購読者のチャネルをcloseし、以後の購読を即座に終了させる。
func (s *Source[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// offer は未読の古い値を捨ててから値を入れる。
// 呼び出し側はSourceのロックを保持していること。
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

// Forward はctxが終了するかストリームが閉じるまで、受信した値をfnに渡し続ける。
// 戻る前に購読を解除する。
func Forward[T any](ctx context.Context, sub *Subscription[T], fn func(T)) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-sub.C():
			if !ok {
				return
			}
			fn(v)
		}
	}
}
