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
	"context"
	"sync"
)

// TransactionResult is the reply to a command: the _result or _error name
// and the values after the transaction id.
type TransactionResult struct {
	Name   string
	Values []interface{}
}

func (r TransactionResult) Failed() bool {
	return r.Name == CommandError
}

// transactionTable tracks commands waiting for their reply, keyed by
// transaction id.
type transactionTable struct {
	mu      sync.Mutex
	next    uint32
	pending map[uint32]chan TransactionResult
	closed  bool
}

func newTransactionTable() *transactionTable {
	return &transactionTable{
		next:    1,
		pending: make(map[uint32]chan TransactionResult),
	}
}

// Register reserves the next transaction id. The channel receives the reply
// or is closed when the transaction is cancelled.
func (t *transactionTable) Register() (uint32, <-chan TransactionResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	ch := make(chan TransactionResult, 1)
	if t.closed {
		close(ch)
		return id, ch
	}
	t.pending[id] = ch
	return id, ch
}

// Resolve hands result to the waiter of id. It reports false for an unknown
// or already finished transaction.
func (t *transactionTable) Resolve(id uint32, result TransactionResult) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.pending[id]
	if !ok {
		return false
	}
	delete(t.pending, id)
	ch <- result
	return true
}

func (t *transactionTable) Cancel(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.pending[id]; ok {
		delete(t.pending, id)
		close(ch)
	}
}

// Close cancels every pending transaction and any registered later.
func (t *transactionTable) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, ch := range t.pending {
		delete(t.pending, id)
		close(ch)
	}
}

func (t *transactionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Wait blocks for the reply of id. Giving up on ctx cancels the transaction.
func (t *transactionTable) Wait(ctx context.Context, id uint32, ch <-chan TransactionResult) (TransactionResult, error) {
	select {
	case result, ok := <-ch:
		if !ok {
			return TransactionResult{}, ErrTransactionCancelled
		}
		return result, nil
	case <-ctx.Done():
		t.Cancel(id)
		return TransactionResult{}, ctx.Err()
	}
}
