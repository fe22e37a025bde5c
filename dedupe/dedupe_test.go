package dedupe

import (
	"fmt"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(name, link string) *models.Record {
	return &models.Record{Name: name, Link: link}
}

func TestRecordsKeepsFirstOccurrenceInOrder(t *testing.T) {
	in := []*models.Record{rec("A", "l1"), rec("B", "l2"), rec("A", "l1")}

	got := Records(in)

	want := []*models.Record{rec("A", "l1"), rec("B", "l2")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Records() mismatch (-want +got):\n%s", diff)
	}
	assert.Same(t, in[0], got[0], "first occurrence should be the retained pointer")
}

func TestRecordsFirstOccurrenceWinsOnPayload(t *testing.T) {
	price := 10.0
	first := &models.Record{Name: "A", Link: "l1", Price: &price}
	later := &models.Record{Name: "A", Link: "l1"}

	got := Records([]*models.Record{first, later})
	require.Len(t, got, 1)
	assert.Same(t, first, got[0])
}

func TestRecordsSameNameDifferentLinkAreDistinct(t *testing.T) {
	got := Records([]*models.Record{rec("A", "l1"), rec("A", "l2"), rec("A", "")})
	assert.Len(t, got, 3)
}

func TestRecordsIdempotent(t *testing.T) {
	in := []*models.Record{
		rec("A", "l1"), rec("B", "l2"), rec("A", "l1"),
		rec("C", ""), rec("B", "l2"), rec("C", ""), rec("D", "l4"),
	}

	once := Records(in)
	twice := Records(once)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("dedupe not idempotent (-once +twice):\n%s", diff)
	}
	assert.Len(t, once, 4)
}

func TestRecordsDoesNotMutateInput(t *testing.T) {
	in := []*models.Record{rec("A", "l1"), rec("A", "l1"), nil}
	snapshot := append([]*models.Record(nil), in...)

	_ = Records(in)
	assert.Equal(t, snapshot, in)
}

func TestRecordsEmpty(t *testing.T) {
	assert.Empty(t, Records(nil))
}

func TestFilterSeen(t *testing.T) {
	f, err := NewFilter(10)
	require.NoError(t, err)

	assert.False(t, f.Seen(rec("A", "l1")))
	assert.True(t, f.Seen(rec("A", "l1")))
	assert.False(t, f.Seen(rec("A", "l2")))
	assert.Equal(t, 2, f.Len())
}

func TestFilterForgetsBeyondSize(t *testing.T) {
	f, err := NewFilter(2)
	require.NoError(t, err)

	assert.False(t, f.Seen(rec("A", "l1")))
	assert.False(t, f.Seen(rec("B", "l2")))
	assert.False(t, f.Seen(rec("C", "l3")))
	assert.Equal(t, 2, f.Len())
	assert.False(t, f.Seen(rec("A", "l1")), "evicted key should be accepted again")
}

func TestFilterRejectsInvalidSize(t *testing.T) {
	_, err := NewFilter(0)
	assert.Error(t, err)
}

func TestFilterConcurrent(t *testing.T) {
	f, err := NewFilter(1000)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if !f.Seen(rec(fmt.Sprintf("item-%d", i), "")) {
					mu.Lock()
					fresh++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, fresh)
}
