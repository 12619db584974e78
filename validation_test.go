package recordapi

import "testing"

func strPtr(s string) *string { return &s }

func TestValidateRecord_Valid(t *testing.T) {
	tests := []struct {
		name string
		req  recordRequest
		age  float64
	}{
		{"json number", recordRequest{Name: strPtr("John Doe"), Age: float64(25)}, 25},
		{"decimal", recordRequest{Name: strPtr("Jane Smith"), Age: float64(30.5)}, 30.5},
		{"numeric string", recordRequest{Name: strPtr("Bob"), Age: "42"}, 42},
		{"decimal string", recordRequest{Name: strPtr("Eve"), Age: "3.14"}, 3.14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, age, verr := validateRecord(&tt.req)
			if verr != nil {
				t.Fatalf("validateRecord() error = %v, want nil", verr)
			}
			if name != *tt.req.Name {
				t.Errorf("name = %q, want %q", name, *tt.req.Name)
			}
			if age != tt.age {
				t.Errorf("age = %v, want %v", age, tt.age)
			}
		})
	}
}

func TestValidateRecord_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		req        recordRequest
		wantFields []string
	}{
		{"missing name", recordRequest{Age: float64(25)}, []string{"name"}},
		{"empty name", recordRequest{Name: strPtr(""), Age: float64(25)}, []string{"name"}},
		{"missing age", recordRequest{Name: strPtr("John")}, []string{"age"}},
		{"non-numeric age", recordRequest{Name: strPtr("John"), Age: "abc"}, []string{"age"}},
		{"empty string age", recordRequest{Name: strPtr("John"), Age: ""}, []string{"age"}},
		{"boolean age", recordRequest{Name: strPtr("John"), Age: true}, []string{"age"}},
		{"empty name and missing age", recordRequest{Name: strPtr("")}, []string{"name", "age"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, verr := validateRecord(&tt.req)
			if verr == nil {
				t.Fatal("validateRecord() error = nil, want ValidationError")
			}
			if len(verr.Fields) != len(tt.wantFields) {
				t.Fatalf("got %d field errors, want %d: %+v", len(verr.Fields), len(tt.wantFields), verr.Fields)
			}
			for i, want := range tt.wantFields {
				if verr.Fields[i].Field != want {
					t.Errorf("field[%d] = %q, want %q", i, verr.Fields[i].Field, want)
				}
			}
		})
	}
}

func TestNumericValue(t *testing.T) {
	if v, ok := numericValue("  7 "); !ok || v != 7 {
		t.Errorf("numericValue(\"  7 \") = %v, %v", v, ok)
	}
	if _, ok := numericValue(nil); ok {
		t.Error("numericValue(nil) = ok, want !ok")
	}
	if _, ok := numericValue([]any{1}); ok {
		t.Error("numericValue(slice) = ok, want !ok")
	}
}
