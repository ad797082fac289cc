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
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestTransactionResolve(t *testing.T) {
	table := newTransactionTable()
	id, ch := table.Register()
	if id != 1 {
		t.Errorf("expected the first transaction id to be 1, got %d", id)
	}
	next, _ := table.Register()
	if next != 2 {
		t.Errorf("expected id 2, got %d", next)
	}
	if !table.Resolve(id, TransactionResult{Name: CommandResult}) {
		t.Errorf("expected resolve to find transaction %d", id)
	}
	if table.Resolve(id, TransactionResult{Name: CommandResult}) {
		t.Errorf("a transaction resolves once")
	}
	result, err := table.Wait(context.Background(), id, ch)
	if err != nil || result.Failed() {
		t.Errorf("unexpected result %+v %v", result, err)
	}
	if table.Len() != 1 {
		t.Errorf("expected 1 pending transaction, got %d", table.Len())
	}
}

func TestTransactionCancelled(t *testing.T) {
	table := newTransactionTable()
	id, ch := table.Register()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := table.Wait(ctx, id, ch); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected a deadline error, got %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("a timed out transaction must be forgotten")
	}

	id, ch = table.Register()
	table.Close()
	if _, err := table.Wait(context.Background(), id, ch); !errors.Is(err, ErrTransactionCancelled) {
		t.Errorf("expected ErrTransactionCancelled, got %v", err)
	}
	id, ch = table.Register()
	if _, err := table.Wait(context.Background(), id, ch); !errors.Is(err, ErrTransactionCancelled) {
		t.Errorf("expected ErrTransactionCancelled after close, got %v", err)
	}
}
