package kernel

import (
	"encoding/binary"
	"io"
)

// EnvRecord is the user-visible image of one table slot at
// UEnvsBase + slot*EnvRecordSize.
type EnvRecord struct {
	ID            int32
	ParentID      int32
	Kind          uint32
	Status        uint32
	Runs          uint32
	IPCRecving    uint32
	PgFaultUpcall uint64
}

const EnvRecordSize = 32

func (k *Kernel) publish(e *Env) {
	b := k.uenvs[e.slot*EnvRecordSize : (e.slot+1)*EnvRecordSize]

	le := binary.LittleEndian

	var recv uint32
	if e.IPCRecving {
		recv = 1
	}

	le.PutUint32(b[0:], uint32(e.ID))
	le.PutUint32(b[4:], uint32(e.ParentID))
	le.PutUint32(b[8:], uint32(e.Kind))
	le.PutUint32(b[12:], uint32(e.Status))
	le.PutUint32(b[16:], e.Runs)
	le.PutUint32(b[20:], recv)
	le.PutUint64(b[24:], e.PgFaultUpcall)
}

// ReadEnvRecord decodes slot's record through any address space that maps the
// table view.
func ReadEnvRecord(r io.ReaderAt, slot int) (EnvRecord, error) {
	var rec EnvRecord

	sr := io.NewSectionReader(r, UEnvsBase+int64(slot*EnvRecordSize), EnvRecordSize)

	err := binary.Read(sr, binary.LittleEndian, &rec)

	return rec, err
}
