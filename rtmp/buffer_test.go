// Copyright © 2021 Kris Nóva <kris@nivenly.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// ────────────────────────────────────────────────────────────────────────────
//
//  ████████╗██╗    ██╗██╗███╗   ██╗██╗  ██╗
//  ╚══██╔══╝██║    ██║██║████╗  ██║╚██╗██╔╝
//     ██║   ██║ █╗ ██║██║██╔██╗ ██║ ╚███╔╝
//     ██║   ██║███╗██║██║██║╚██╗██║ ██╔██╗
//     ██║   ╚███╔███╔╝██║██║ ╚████║██╔╝ ██╗
//     ╚═╝    ╚══╝╚══╝ ╚═╝╚═╝  ╚═══╝╚═╝  ╚═╝
//
// ────────────────────────────────────────────────────────────────────────────

package rtmp

import (
	"sync"
	"testing"
)

func TestRentedBufferClaims(t *testing.T) {
	pool := NewBufferPool(8)
	b := pool.Obtain()
	b.Write([]byte("hello"))
	rb := pool.RentFrom(b, 3)
	pool.Recycle(b)

	if string(rb.Bytes()) != "hello" {
		t.Errorf("expected hello, got %q", rb.Bytes())
	}
	rb.Claim()
	for i := 0; i < 3; i++ {
		rb.Unclaim()
	}
	if pool.Outstanding() != 1 {
		t.Errorf("expected 1 outstanding rental, got %d", pool.Outstanding())
	}
	rb.Unclaim()
	if pool.Outstanding() != 0 || pool.Recycled() != 1 {
		t.Errorf("expected the array back in the pool, outstanding %d recycled %d", pool.Outstanding(), pool.Recycled())
	}
}

func TestRentedBufferClaimConservation(t *testing.T) {
	pool := NewBufferPool(8)
	const rentals = 100
	const owners = 8

	var wg sync.WaitGroup
	for i := 0; i < rentals; i++ {
		rb := pool.Rent(64, owners)
		for j := 0; j < owners; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rb.Claim()
				rb.Unclaim()
				rb.Unclaim()
			}()
		}
	}
	wg.Wait()
	if pool.Outstanding() != 0 {
		t.Errorf("expected every rental recycled, %d outstanding", pool.Outstanding())
	}
	if pool.Recycled() != rentals {
		t.Errorf("expected %d recycles, got %d", rentals, pool.Recycled())
	}
}

func expectPanic(t *testing.T, name string, fn func()) {
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected a panic", name)
		}
	}()
	fn()
}

func TestRentedBufferMisuse(t *testing.T) {
	pool := NewBufferPool(8)
	expectPanic(t, "zero claims", func() { pool.Rent(1, 0) })

	rb := pool.Rent(1, 1)
	rb.Unclaim()
	expectPanic(t, "claim after release", func() { rb.Claim() })

	rb = pool.Rent(1, 1)
	rb.Unclaim()
	expectPanic(t, "unclaim after release", func() { rb.Unclaim() })
}

func TestBufferPoolBound(t *testing.T) {
	pool := NewBufferPool(2)
	a := pool.Obtain()
	b := pool.Obtain()
	c := pool.Obtain()
	if pool.OutstandingBuffers() != 2 {
		t.Errorf("expected 2 pooled buffers in use, got %d", pool.OutstandingBuffers())
	}
	pool.Recycle(c)
	pool.Recycle(b)
	pool.Recycle(a)
	if pool.OutstandingBuffers() != 0 {
		t.Errorf("expected 0 pooled buffers in use, got %d", pool.OutstandingBuffers())
	}
}
