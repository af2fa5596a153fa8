package deflate

// readDynHeader advances the in-progress dynamic block header parse
// (RFC 1951 §3.2.7) as far as the currently buffered input allows. It
// returns a need-input error (bitio.NeedInput) when it must pause; the
// parse resumes exactly where it left off on the next call because every
// already-decoded field is recorded in d.dyn before readDynHeader returns.
func (d *Decoder) readDynHeader() error {
	dyn := &d.dyn

	if dyn.phase == 0 {
		for dyn.sub < 3 {
			var bits, nbits int
			switch dyn.sub {
			case 0:
				nbits = 5
			case 1:
				nbits = 5
			case 2:
				nbits = 4
			}
			v, err := d.src.GetBits(nbits)
			if err != nil {
				return err
			}
			bits = int(v)
			switch dyn.sub {
			case 0:
				dyn.hlit = bits + 257
			case 1:
				dyn.hdist = bits + 1
			case 2:
				dyn.hclen = bits + 4
			}
			dyn.sub++
		}
		dyn.phase = 1
		dyn.idx = 0
	}

	if dyn.phase == 1 {
		for dyn.idx < dyn.hclen {
			v, err := d.src.GetBits(3)
			if err != nil {
				return err
			}
			dyn.clLengths[codeLengthOrder[dyn.idx]] = uint8(v)
			dyn.idx++
		}
		tree, err := buildTree(dyn.clLengths[:])
		if err != nil {
			return err
		}
		dyn.clTree = tree
		dyn.phase = 2
		dyn.idx = 0
		dyn.lengths = make([]uint8, dyn.hlit+dyn.hdist)
		dyn.pending = -1
	}

	total := dyn.hlit + dyn.hdist
	for dyn.idx < total {
		sym := dyn.pending
		if sym < 0 {
			s, err := decodeSymbol(d.src, dyn.clTree)
			if err != nil {
				return err
			}
			sym = s
		}

		switch {
		case sym < 16:
			dyn.lengths[dyn.idx] = uint8(sym)
			dyn.idx++
			dyn.prevLen = uint8(sym)
			dyn.pending = -1

		case sym == 16:
			v, err := d.src.GetBits(2)
			if err != nil {
				dyn.pending = sym
				return err
			}
			fillRepeat(dyn, int(v)+3, dyn.prevLen, total)
			dyn.pending = -1

		case sym == 17:
			v, err := d.src.GetBits(3)
			if err != nil {
				dyn.pending = sym
				return err
			}
			fillRepeat(dyn, int(v)+3, 0, total)
			dyn.pending = -1

		case sym == 18:
			v, err := d.src.GetBits(7)
			if err != nil {
				dyn.pending = sym
				return err
			}
			fillRepeat(dyn, int(v)+11, 0, total)
			dyn.pending = -1
		}
	}

	litTree, err := buildTree(dyn.lengths[:dyn.hlit])
	if err != nil {
		return err
	}
	distTree, err := buildTree(dyn.lengths[dyn.hlit:])
	if err != nil {
		return err
	}
	d.litTree = litTree
	d.distTree = distTree
	return nil
}

func fillRepeat(dyn *dynHeaderState, count int, value uint8, total int) {
	for i := 0; i < count && dyn.idx < total; i++ {
		dyn.lengths[dyn.idx] = value
		dyn.idx++
	}
}
