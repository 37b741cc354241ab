package metrics

import "testing"

func TestMeasure(t *testing.T) {
	src := "package x\n\nfunc f(a int) int {\n\tif a > 0 {\n\t\treturn 1\n\t} else {\n\t\treturn 0\n\t}\n}\n"
	st := Measure([]byte(src))
	if st.Lines != 9 {
		t.Errorf("Lines = %d, want 9", st.Lines)
	}
	if st.Size != int64(len(src)) {
		t.Errorf("Size = %d", st.Size)
	}
	if st.Complexity != 3 {
		t.Errorf("Complexity = %d, want 3 (1 + if + else)", st.Complexity)
	}
	if len(st.Hash) != 64 {
		t.Errorf("Hash = %q", st.Hash)
	}
	if Measure([]byte(src)).Hash != st.Hash {
		t.Error("hash not stable")
	}
}

func TestMeasure_Empty(t *testing.T) {
	st := Measure(nil)
	if st.Lines != 0 || st.Complexity != 1 {
		t.Errorf("empty stats = %+v", st)
	}
}

func TestComplexity(t *testing.T) {
	tests := []struct {
		src  string
		want int
	}{
		{"x = 1", 1},
		{"for (;;) { while (x) {} }", 3},
		{"try { a() } catch (e) { b() }", 3},
		{"const v = a ? b : c", 2},
		{"const v = a?.b ?? c", 1},
		{"switch (x) { }", 2},
		{"elsewhere iffy formula", 1},
	}
	for _, tt := range tests {
		if got := Complexity(tt.src); got != tt.want {
			t.Errorf("Complexity(%q) = %d, want %d", tt.src, got, tt.want)
		}
	}
}

func TestComputeLineDelta(t *testing.T) {
	tests := []struct {
		name          string
		before, after string
		added, del    int
	}{
		{"create", "", "a\nb\nc\n", 3, 0},
		{"delete", "a\nb\n", "", 0, 2},
		{"edit one line", "a\nb\nc\n", "a\nB\nc\n", 1, 1},
		{"reorder is free", "a\nb\n", "b\na\n", 0, 0},
		{"indent is free", "a\n", "    a\n", 0, 0},
		{"duplicates consume once", "}\n", "}\n}\n", 1, 0},
		{"blank lines ignored", "a\n\n\n", "a\n", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ComputeLineDelta(tt.before, tt.after)
			if d.Added != tt.added || d.Deleted != tt.del {
				t.Errorf("delta = %+v, want +%d -%d", d, tt.added, tt.del)
			}
		})
	}
}

func TestCountDelta(t *testing.T) {
	if d := CountDelta(10, 15); d != (LineDelta{Added: 5}) {
		t.Errorf("grow = %+v", d)
	}
	if d := CountDelta(10, 4); d != (LineDelta{Deleted: 6}) {
		t.Errorf("shrink = %+v", d)
	}
}
