package enums

// ChangeType classifies a row-level change on the orders table.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

func (c ChangeType) String() string { return string(c) }

func (c ChangeType) IsValid() bool {
	return set[ChangeType]{ChangeInsert, ChangeUpdate, ChangeDelete}.has(c)
}
