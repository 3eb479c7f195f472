package store

import (
	"go.mongodb.org/mongo-driver/bson"
)

// Cond is a guard evaluated against the stored document in the same atomic
// step as the write it is attached to.
type Cond struct {
	Field string
	Op    string
	Value any
}

// Eq holds when field equals value.
func Eq(field string, value any) Cond { return Cond{Field: field, Op: "$eq", Value: value} }

// Gte holds when the numeric field is >= n.
func Gte(field string, n int64) Cond { return Cond{Field: field, Op: "$gte", Value: n} }

// Patch is a set of field operations applied to a single document.
//
// Set and Unset are distinct: a field that is neither set nor unset is left
// untouched, which lets update payloads tell "omitted" apart from "cleared".
type Patch struct {
	set   bson.M
	unset []string
	inc   bson.M
	push  bson.M
	pull  bson.M
	conds []Cond
}

func NewPatch() *Patch {
	return &Patch{set: bson.M{}, inc: bson.M{}, push: bson.M{}, pull: bson.M{}}
}

func (p *Patch) Set(field string, value any) *Patch {
	p.set[field] = value
	return p
}

func (p *Patch) Unset(field string) *Patch {
	p.unset = append(p.unset, field)
	return p
}

func (p *Patch) Inc(field string, delta int64) *Patch {
	if cur, ok := p.inc[field].(int64); ok {
		delta += cur
	}
	p.inc[field] = delta
	return p
}

// Push appends value to an array field.
func (p *Patch) Push(field string, value any) *Patch {
	p.push[field] = value
	return p
}

// Pull removes every occurrence of value from an array field.
func (p *Patch) Pull(field string, value any) *Patch {
	p.pull[field] = value
	return p
}

// Where attaches guards; the patch is applied only if all of them hold.
func (p *Patch) Where(conds ...Cond) *Patch {
	p.conds = append(p.conds, conds...)
	return p
}

// Empty reports whether the patch carries no write operation.
func (p *Patch) Empty() bool {
	return len(p.set) == 0 && len(p.unset) == 0 && len(p.inc) == 0 &&
		len(p.push) == 0 && len(p.pull) == 0
}

// Conds returns the guards attached to the patch.
func (p *Patch) Conds() []Cond { return p.conds }

// Document renders the patch as a MongoDB update document.
func (p *Patch) Document() bson.M {
	doc := bson.M{}
	if len(p.set) > 0 {
		doc["$set"] = p.set
	}
	if len(p.unset) > 0 {
		u := bson.M{}
		for _, f := range p.unset {
			u[f] = ""
		}
		doc["$unset"] = u
	}
	if len(p.inc) > 0 {
		doc["$inc"] = p.inc
	}
	if len(p.push) > 0 {
		doc["$push"] = p.push
	}
	if len(p.pull) > 0 {
		doc["$pull"] = p.pull
	}
	return doc
}

// filter renders the id plus guards as a MongoDB filter.
func filter(id any, conds []Cond) bson.M {
	f := bson.M{"_id": id}
	for _, c := range conds {
		if existing, ok := f[c.Field].(bson.M); ok {
			existing[c.Op] = c.Value
			continue
		}
		f[c.Field] = bson.M{c.Op: c.Value}
	}
	return f
}
