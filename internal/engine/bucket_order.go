package engine

// Order is the on-the-wire order of the picklist buckets. Index i of a
// serialized picklist always holds Order[i].
var Order = [NumBuckets]Bucket{
	NoPick,
	FirstPick,
	SecondPick,
	ThirdPick,
	DoNotPick,
}
