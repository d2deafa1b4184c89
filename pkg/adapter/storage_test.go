package adapter_test

import (
	"context"
	"io"
	"testing"

	"awakener/pkg/adapter"

	"github.com/m-mizutani/gt"
)

func TestLocalStoragePutGet(t *testing.T) {
	ctx := context.Background()
	st, err := adapter.NewLocalStorage(t.TempDir())
	gt.NoError(t, err)

	w, err := st.Put(ctx, "logs/round_7.md")
	gt.NoError(t, err)
	_, err = w.Write([]byte("## Round 7\naction log"))
	gt.NoError(t, err)
	gt.NoError(t, w.Close())

	r, err := st.Get(ctx, "logs/round_7.md")
	gt.NoError(t, err)
	data, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.NoError(t, r.Close())
	gt.S(t, string(data)).Contains("action log")
}

func TestLocalStorageDelete(t *testing.T) {
	ctx := context.Background()
	st, err := adapter.NewLocalStorage(t.TempDir())
	gt.NoError(t, err)

	w, err := st.Put(ctx, "logs/round_1.md")
	gt.NoError(t, err)
	gt.NoError(t, w.Close())

	gt.NoError(t, st.Delete(ctx, "logs/round_1.md"))
	_, err = st.Get(ctx, "logs/round_1.md")
	gt.Error(t, err)

	// Deleting a missing key is fine.
	gt.NoError(t, st.Delete(ctx, "logs/round_1.md"))
}
