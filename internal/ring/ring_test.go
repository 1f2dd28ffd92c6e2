package ring

import (
	"reflect"
	"testing"
)

func TestBuffer(t *testing.T) {
	t.Run("push below capacity keeps everything", func(t *testing.T) {
		b := New[int](5)
		for i := 1; i <= 3; i++ {
			b.Push(i)
		}
		if b.Len() != 3 {
			t.Fatalf("Len = %d, want 3", b.Len())
		}
		if got := b.Snapshot(); !reflect.DeepEqual(got, []int{1, 2, 3}) {
			t.Fatalf("Snapshot = %v, want [1 2 3]", got)
		}
	})

	t.Run("overwrites oldest once full", func(t *testing.T) {
		const capacity = 10
		b := New[int](capacity)
		for i := 0; i < capacity+5; i++ {
			b.Push(i)
		}
		if b.Len() != capacity {
			t.Fatalf("Len = %d, want %d", b.Len(), capacity)
		}
		want := make([]int, capacity)
		for i := range want {
			want[i] = i + 5 // exactly the last capacity values, oldest first
		}
		if got := b.Snapshot(); !reflect.DeepEqual(got, want) {
			t.Fatalf("Snapshot = %v, want %v", got, want)
		}
	})

	t.Run("tail returns most recent suffix", func(t *testing.T) {
		b := New[int](8)
		for i := 0; i < 12; i++ {
			b.Push(i)
		}
		if got := b.Tail(3); !reflect.DeepEqual(got, []int{9, 10, 11}) {
			t.Fatalf("Tail(3) = %v, want [9 10 11]", got)
		}
		if got := b.Tail(100); len(got) != 8 {
			t.Fatalf("Tail beyond Len returned %d elements, want 8", len(got))
		}
		if got := b.Tail(0); len(got) != 0 {
			t.Fatalf("Tail(0) = %v, want empty", got)
		}
	})

	t.Run("snapshot is a copy", func(t *testing.T) {
		b := New[int](4)
		b.Push(1)
		snap := b.Snapshot()
		snap[0] = 99
		if got := b.Snapshot()[0]; got != 1 {
			t.Fatalf("mutating a snapshot reached the buffer: %d", got)
		}
	})

	t.Run("clear empties the buffer", func(t *testing.T) {
		b := New[int](4)
		b.Push(1)
		b.Push(2)
		b.Clear()
		if b.Len() != 0 {
			t.Fatalf("Len after Clear = %d, want 0", b.Len())
		}
		b.Push(7)
		if got := b.Snapshot(); !reflect.DeepEqual(got, []int{7}) {
			t.Fatalf("Snapshot after Clear+Push = %v, want [7]", got)
		}
	})

	t.Run("drain moves contents in order and clears source", func(t *testing.T) {
		src := New[int](3)
		dst := New[int](10)
		dst.Push(0)
		for i := 1; i <= 5; i++ {
			src.Push(i) // 1 and 2 fall off
		}
		if n := src.DrainTo(dst); n != 3 {
			t.Fatalf("DrainTo moved %d, want 3", n)
		}
		if src.Len() != 0 {
			t.Fatalf("source Len after drain = %d, want 0", src.Len())
		}
		if got := dst.Snapshot(); !reflect.DeepEqual(got, []int{0, 3, 4, 5}) {
			t.Fatalf("dst Snapshot = %v, want [0 3 4 5]", got)
		}
	})

	t.Run("drain into smaller buffer keeps newest", func(t *testing.T) {
		src := New[int](4)
		dst := New[int](2)
		for i := 1; i <= 4; i++ {
			src.Push(i)
		}
		src.DrainTo(dst)
		if got := dst.Snapshot(); !reflect.DeepEqual(got, []int{3, 4}) {
			t.Fatalf("dst Snapshot = %v, want [3 4]", got)
		}
	})

	t.Run("capacity must be positive", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("New(0) did not panic")
			}
		}()
		New[int](0)
	})
}
