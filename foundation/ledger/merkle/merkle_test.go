package merkle_test

import (
	"crypto/sha256"
	"testing"

	"github.com/ledgersim/ledger/foundation/ledger/merkle"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// data implements the Hashable interface over a plain string.
type data string

func (d data) Hash() ([]byte, error) {
	sum := sha256.Sum256([]byte(d))
	return sum[:], nil
}

func (d data) Equals(other data) bool {
	return d == other
}

// =============================================================================

func Test_Tree(t *testing.T) {
	tests := []struct {
		name   string
		values []data
	}{
		{"even", []data{"a", "b", "c", "d"}},
		{"odd", []data{"a", "b", "c"}},
		{"single", []data{"a"}},
	}

	t.Log("Given the need to commit to a set of values with a merkle tree.")
	{
		for testID, tst := range tests {
			t.Logf("\tTest %d:\tWhen building a tree over the %s value set.", testID, tst.name)
			{
				f := func(t *testing.T) {
					tree, err := merkle.NewTree(tst.values)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to build the tree: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to build the tree.", success, testID)

					if err := tree.Verify(); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould verify the generated root: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould verify the generated root.", success, testID)

					values := tree.Values()
					if len(values) != len(tst.values) {
						t.Fatalf("\t%s\tTest %d:\tShould return the original values without duplicates, got %d.", failed, testID, len(values))
					}
					t.Logf("\t%s\tTest %d:\tShould return the original values without duplicates.", success, testID)

					for _, value := range tst.values {
						proof, order, err := tree.Proof(value)
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould produce a proof for %q: %v", failed, testID, value, err)
						}
						if len(proof) != len(order) {
							t.Fatalf("\t%s\tTest %d:\tShould pair every proof hash with an order value.", failed, testID)
						}
					}
					t.Logf("\t%s\tTest %d:\tShould produce a proof for every value.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}

		testID := len(tests)
		t.Logf("\tTest %d:\tWhen the value set changes.", testID)
		{
			treeA, err := merkle.NewTree([]data{"a", "b"})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build the first tree: %v", failed, testID, err)
			}
			treeB, err := merkle.NewTree([]data{"a", "x"})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build the second tree: %v", failed, testID, err)
			}

			if treeA.RootHex() == treeB.RootHex() {
				t.Fatalf("\t%s\tTest %d:\tShould produce a different root for different values.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould produce a different root for different values.", success, testID)

			if _, _, err := treeA.Proof(data("missing")); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject a proof request for an absent value.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a proof request for an absent value.", success, testID)
		}
	}
}
