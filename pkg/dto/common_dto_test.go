package dto

import "testing"

func TestPaginationQuery_Normalize(t *testing.T) {
	q := PaginationQuery{}
	if offset := q.Normalize(20); offset != 0 || q.Page != 1 || q.Limit != 20 {
		t.Errorf("defaults = %+v offset %d", q, offset)
	}

	q = PaginationQuery{Page: 3, Limit: 10}
	if offset := q.Normalize(20); offset != 20 {
		t.Errorf("offset = %d, want 20", offset)
	}
}

func TestNewPaginationMeta(t *testing.T) {
	tests := []struct {
		total int64
		limit int
		want  int
	}{
		{0, 10, 0},
		{10, 10, 1},
		{11, 10, 2},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := NewPaginationMeta(1, tt.limit, tt.total).TotalPages; got != tt.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tt.total, tt.limit, got, tt.want)
		}
	}
}
