package model

type Pet struct {
	ID         int64   `db:"id" json:"id"`
	CustomerID int64   `db:"customer_id" json:"customer_id"`
	Name       string  `db:"name" json:"name"`
	Species    string  `db:"species" json:"species"`
	Breed      *string `db:"breed" json:"breed,omitempty"`
}

type PetUpdate struct {
	Name    *string
	Species *string
	Breed   *string
}

func (u PetUpdate) IsEmpty() bool {
	return u.Name == nil && u.Species == nil && u.Breed == nil
}
