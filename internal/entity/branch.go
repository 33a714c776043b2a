package entity

// AllBranches is the browse-everything selection. It is never a pickup branch.
const AllBranches = "all"

// Branch is a physical pickup location.
type Branch struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Address string `json:"address" yaml:"address"`
}
