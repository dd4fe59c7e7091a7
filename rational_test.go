package imf

import "testing"

func TestRationalArithmetic(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		a := NewRational(1, 24)
		b := NewRational(1, 24)
		sum := a.Add(b)
		if sum.Cmp(NewRational(1, 12)) != 0 {
			t.Errorf("1/24 + 1/24 = %s, want 1/12", sum)
		}

		product := NewRational(24, 1).Mul(NewRational(1, 24))
		if product.Cmp(NewRational(1, 1)) != 0 {
			t.Errorf("24 * 1/24 = %s, want 1/1", product)
		}

		if NewRational(1, 24).Inv().Cmp(NewRational(24, 1)) != 0 {
			t.Fail()
		}
	})
}

func TestRationalCmp(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		if NewRational(1, 2).Cmp(NewRational(1, 3)) <= 0 {
			t.Fail()
		}
		if NewRational(2, 4).Cmp(NewRational(1, 2)) != 0 {
			t.Fail()
		}
	})
}

func TestReadRational(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		r, err := ReadRational(rationalEl("EditRate", "24", "1"))
		if err != nil {
			t.Fatalf("ReadRational: %v", err)
		}
		if r.Cmp(NewRational(24, 1)) != 0 {
			t.Errorf("got %s, want 24/1", r)
		}
	})
}

func TestReadRationalWrongFieldCount(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		if _, err := ReadRational(el("EditRate", "24")); err == nil {
			t.Fatal("expected error for single-field rational")
		}
	})
}

func TestReadULong(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		v, err := ReadULong(el("SourceDuration", "48"))
		if err != nil {
			t.Fatalf("ReadULong: %v", err)
		}
		if v != 48 {
			t.Errorf("got %d, want 48", v)
		}
	})
}
