package main

import "testing"

func TestLintSource(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int
	}{
		{
			name: "marked",
			src:  "package q\nconst QOne = `--sql 11111111-2222-3333-4444-555555555555\nselect 1;`\n",
			want: 0,
		},
		{
			name: "missing marker",
			src:  "package q\nconst QOne = `select 1;`\n",
			want: 1,
		},
		{
			name: "bad uuid",
			src:  "package q\nconst QOne = `--sql not-a-uuid\nupdate t set a = 1;`\n",
			want: 1,
		},
		{
			name: "duplicate marker",
			src:  "package q\nconst (\n QOne = `--sql 11111111-2222-3333-4444-555555555555\nselect 1;`\n QTwo = `--sql 11111111-2222-3333-4444-555555555555\nselect 2;`\n)\n",
			want: 1,
		},
		{
			name: "non query constants ignored",
			src:  "package q\nconst msg = `select a pack`\nconst QLabel = `pick one with care`\n",
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &linter{prefix: "Q", seen: make(map[string]string)}
			if err := l.lintSource("q.go", []byte(tt.src)); err != nil {
				t.Fatalf("lint: %v", err)
			}
			if len(l.found) != tt.want {
				t.Fatalf("got %d violations %+v, want %d", len(l.found), l.found, tt.want)
			}
		})
	}
}
