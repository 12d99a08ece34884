package wat

// RedFlags are the five critical visual findings. They are independent of
// scoring; when set they force-escalate item values and the alert level.
type RedFlags struct {
	Worms             bool `json:"worms"`
	BoneExposed       bool `json:"bone_exposed"`
	PurulentDischarge bool `json:"purulent_discharge"`
	NecrosisGT50      bool `json:"necrosis_gt50"`
	SevereUndermining bool `json:"severe_undermining"`
}

// Any reports whether at least one flag is set.
func (f RedFlags) Any() bool {
	return f.Worms || f.BoneExposed || f.PurulentDischarge || f.NecrosisGT50 || f.SevereUndermining
}

// Names lists the set flags in a fixed order.
func (f RedFlags) Names() []string {
	var names []string
	if f.Worms {
		names = append(names, "worms")
	}
	if f.BoneExposed {
		names = append(names, "bone_exposed")
	}
	if f.PurulentDischarge {
		names = append(names, "purulent_discharge")
	}
	if f.NecrosisGT50 {
		names = append(names, "necrosis_gt50")
	}
	if f.SevereUndermining {
		names = append(names, "severe_undermining")
	}
	return names
}

func raiseTo(v *int, floor int) {
	if *v < floor {
		*v = floor
	}
}

// Apply escalates item values per the override policy. Overrides are
// monotonic: an item value never decreases.
func (f RedFlags) Apply(it *Items) {
	if f.BoneExposed {
		it.Depth = ItemMax
	}
	if f.SevereUndermining {
		it.Undermining = ItemMax
		raiseTo(&it.Edges, 4)
	}
	if f.NecrosisGT50 {
		it.NecroticAmount = ItemMax
		raiseTo(&it.NecroticType, 3)
	}
	if f.PurulentDischarge {
		it.ExudateType = ItemMax
		raiseTo(&it.ExudateAmount, 4)
	}
	if f.Worms {
		it.ExudateType = ItemMax
		raiseTo(&it.ExudateAmount, 4)
		raiseTo(&it.NecroticAmount, 4)
	}
}
