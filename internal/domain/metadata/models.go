// metadata contains models that hold data about data. Elasticsearch is the primary store, so
// versions are expressed in its terms (seq number and primary term); other stores map their own
// row versions onto SeqNum and leave PrimaryTerm constant.
package metadata

type SeqNum uint64
type PrimaryTerm uint64

type Version struct {
	SeqNum      SeqNum
	PrimaryTerm PrimaryTerm
}

type Metadata struct {
	Version Version
}
