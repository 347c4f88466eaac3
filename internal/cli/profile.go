package cli

import (
	"math/big"
	"os"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"gostim/pkg/constraint"
	"gostim/pkg/container"
	"gostim/pkg/engine"
	"gostim/pkg/value"
)

// FlexibleBig parses yaml numbers in whatever form profiles use: plain
// integers, decimal strings, or "0x" hex strings of any width.
type FlexibleBig struct {
	value *big.Int
}

func (f *FlexibleBig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var num int64
	if err := unmarshal(&num); err == nil {
		f.value = big.NewInt(num)
		return nil
	}
	var unum uint64
	if err := unmarshal(&unum); err == nil {
		f.value = new(big.Int).SetUint64(unum)
		return nil
	}
	var str string
	if err := unmarshal(&str); err != nil {
		return errors.Wrap(err, "value is neither a number nor a string")
	}
	if str == "" || str == "0x" {
		f.value = new(big.Int)
		return nil
	}
	// base 0 accepts 0x/0b prefixes and a sign
	v, ok := new(big.Int).SetString(str, 0)
	if !ok {
		return errors.Errorf("cannot parse numeric value %q", str)
	}
	f.value = v
	return nil
}

// Big returns the parsed value, nil when the field was absent.
func (f *FlexibleBig) Big() *big.Int {
	if f == nil {
		return nil
	}
	return f.value
}

// FieldSpec declares one container field.
type FieldSpec struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`    // uint8..uint64, int8..int64, logic, enum, fp16, fp32, fp64
	Width   int      `yaml:"width"`   // for type logic
	Signed  bool     `yaml:"signed"`  // for type logic
	Members []uint64 `yaml:"members"` // for type enum
}

// ConstraintSpec declares one constraint. The op vocabulary follows the
// constraint package; for float fields the relational ops map to their float
// forms automatically.
type ConstraintSpec struct {
	Name    string         `yaml:"name"`
	Field   string         `yaml:"field"`
	Op      string         `yaml:"op"`
	Value   *FlexibleBig   `yaml:"value"`
	Lo      *FlexibleBig   `yaml:"lo"`
	Hi      *FlexibleBig   `yaml:"hi"`
	Set     []*FlexibleBig `yaml:"set"`
	Mask    *FlexibleBig   `yaml:"mask"`
	Pattern *FlexibleBig   `yaml:"pattern"`
	Shift   int            `yaml:"shift"`
	Other   string         `yaml:"other"` // second field for var-var relations
	FValue  float64        `yaml:"fvalue"`
	FLo     float64        `yaml:"flo"`
	FHi     float64        `yaml:"fhi"`
	Soft    bool           `yaml:"soft"`
}

// Profile is a yaml stimulus description: an engine configuration plus the
// fields and constraints of one container.
type Profile struct {
	Name        string           `yaml:"name"`
	Engine      *engine.Config   `yaml:"engine"`
	Fields      []FieldSpec      `yaml:"fields"`
	Constraints []ConstraintSpec `yaml:"constraints"`
}

// LoadProfile reads and parses a profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read profile")
	}
	return ParseProfile(data)
}

// ParseProfile parses profile yaml.
func ParseProfile(data []byte) (*Profile, error) {
	p := &Profile{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, errors.Wrap(err, "parse profile yaml")
	}
	if p.Name == "" {
		p.Name = "stimulus"
	}
	if p.Engine == nil {
		p.Engine = engine.DefaultConfig()
	} else {
		p.Engine.MergeWithDefaults()
	}
	if len(p.Fields) == 0 {
		return nil, errors.New("profile declares no fields")
	}
	return p, nil
}

// Build assembles the container the profile describes.
func (p *Profile) Build() (*container.Container, error) {
	c := container.New(p.Name, engine.New(p.Engine))

	for _, fs := range p.Fields {
		if err := addField(c, fs); err != nil {
			return nil, errors.Wrapf(err, "field %q", fs.Name)
		}
	}
	for _, cs := range p.Constraints {
		cons, err := buildConstraint(c, cs)
		if err != nil {
			return nil, errors.Wrapf(err, "constraint %q", cs.Name)
		}
		if err := c.Constrain(cons); err != nil {
			return nil, errors.Wrapf(err, "constraint %q", cs.Name)
		}
	}
	return c, nil
}

func addField(c *container.Container, fs FieldSpec) error {
	switch fs.Type {
	case "uint8":
		return c.AddLogic(value.NewUint8(fs.Name))
	case "uint16":
		return c.AddLogic(value.NewUint16(fs.Name))
	case "uint32":
		return c.AddLogic(value.NewUint32(fs.Name))
	case "uint64":
		return c.AddLogic(value.NewUint64(fs.Name))
	case "int8":
		return c.AddLogic(value.NewInt8(fs.Name))
	case "int16":
		return c.AddLogic(value.NewInt16(fs.Name))
	case "int32":
		return c.AddLogic(value.NewInt32(fs.Name))
	case "int64":
		return c.AddLogic(value.NewInt64(fs.Name))
	case "logic":
		v, err := value.NewLogic(fs.Name, fs.Width, fs.Signed)
		if err != nil {
			return err
		}
		return c.AddLogic(v)
	case "enum":
		v, err := value.NewEnum(fs.Name, fs.Members)
		if err != nil {
			return err
		}
		return c.AddLogic(v)
	case "fp16":
		return c.AddFloat(value.NewFp16(fs.Name))
	case "fp32":
		return c.AddFloat(value.NewFp32(fs.Name))
	case "fp64":
		return c.AddFloat(value.NewFp64(fs.Name))
	}
	return errors.Errorf("unknown field type %q", fs.Type)
}

var relOps = map[string]constraint.Op{
	"eq": constraint.EQ,
	"ne": constraint.NE,
	"lt": constraint.LT,
	"le": constraint.LE,
	"gt": constraint.GT,
	"ge": constraint.GE,
}

var floatRelOps = map[string]constraint.Op{
	"eq": constraint.FEQ,
	"ne": constraint.FNE,
	"lt": constraint.FLT,
	"le": constraint.FLE,
	"gt": constraint.FGT,
	"ge": constraint.FGE,
}

func buildConstraint(c *container.Container, cs ConstraintSpec) (*constraint.Constraint, error) {
	if f, ok := c.Float(cs.Field); ok {
		return buildFloatConstraint(f, cs)
	}
	v, ok := c.Logic(cs.Field)
	if !ok {
		return nil, errors.Errorf("unknown field %q", cs.Field)
	}

	var out *constraint.Constraint
	switch cs.Op {
	case "eq", "ne", "lt", "le", "gt", "ge":
		op := relOps[cs.Op]
		if cs.Other != "" {
			b, ok := c.Logic(cs.Other)
			if !ok {
				return nil, errors.Errorf("unknown field %q", cs.Other)
			}
			out = constraint.RelVar(cs.Name, v, op, b)
		} else {
			out = constraint.Rel(cs.Name, v, op, cs.Value.Big())
		}
	case "range":
		out = constraint.Between(cs.Name, v, cs.Lo.Big(), cs.Hi.Big())
	case "in":
		out = constraint.In(cs.Name, v, bigs(cs.Set))
	case "not_in":
		out = constraint.NotIn(cs.Name, v, bigs(cs.Set))
	case "and_eq":
		out = constraint.MaskEQ(cs.Name, v, cs.Mask.Big(), cs.Pattern.Big())
	case "and_ne":
		out = constraint.MaskNE(cs.Name, v, cs.Mask.Big(), cs.Pattern.Big())
	case "or_eq":
		out = constraint.MaskOrEQ(cs.Name, v, cs.Mask.Big(), cs.Pattern.Big())
	case "xor_eq":
		out = constraint.MaskXorEQ(cs.Name, v, cs.Mask.Big(), cs.Pattern.Big())
	case "shr_and":
		out = constraint.ShrAnd(cs.Name, v, cs.Shift, cs.Mask.Big(), cs.Pattern.Big())
	case "shl_and":
		out = constraint.ShlAnd(cs.Name, v, cs.Shift, cs.Mask.Big(), cs.Pattern.Big())
	default:
		return nil, errors.Errorf("unknown op %q", cs.Op)
	}
	if cs.Soft {
		out.AsSoft()
	}
	return out, nil
}

func buildFloatConstraint(f *value.Float, cs ConstraintSpec) (*constraint.Constraint, error) {
	var out *constraint.Constraint
	switch cs.Op {
	case "eq", "ne", "lt", "le", "gt", "ge":
		out = constraint.FloatRel(cs.Name, f, floatRelOps[cs.Op], cs.FValue)
	case "range":
		out = constraint.FloatBetween(cs.Name, f, cs.FLo, cs.FHi)
	default:
		return nil, errors.Errorf("op %q not supported on float field %q", cs.Op, f.Name())
	}
	if cs.Soft {
		out.AsSoft()
	}
	return out, nil
}

func bigs(in []*FlexibleBig) []*big.Int {
	out := make([]*big.Int, 0, len(in))
	for _, f := range in {
		out = append(out, f.Big())
	}
	return out
}
