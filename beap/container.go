package beap

import "encoding/json"

// ContainerType is the fixed discriminator for .beap files.
const ContainerType = "BEAP_PACKAGE"

// Container is the .beap file format: UTF-8 JSON wrapping one package.
type Container struct {
	BeapVersion string       `json:"beapVersion"`
	Type        string       `json:"type"`
	Envelope    *BeapPackage `json:"envelope"`
}

// EncodeContainer renders a package as .beap container bytes.
func EncodeContainer(pkg *BeapPackage) ([]byte, error) {
	if pkg == nil {
		return nil, newError(KindValidation, "BEAP-CNT-001", "nil package")
	}
	data, err := json.Marshal(Container{
		BeapVersion: Version,
		Type:        ContainerType,
		Envelope:    pkg,
	})
	if err != nil {
		return nil, wrapError(KindInternal, "BEAP-CNT-002", "encode container", err)
	}
	return data, nil
}

// DecodeContainer parses .beap container bytes. The type discriminator and
// envelope presence are checked; everything else is the verifier's job.
func DecodeContainer(data []byte) (*BeapPackage, error) {
	var c Container
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, wrapError(KindParse, "BEAP-CNT-003", "decode container", err)
	}
	if c.Type != ContainerType {
		return nil, newError(KindParse, "BEAP-CNT-004", "container type is not "+ContainerType)
	}
	if c.BeapVersion == "" {
		return nil, newError(KindParse, "BEAP-CNT-005", "container has no beapVersion")
	}
	if c.Envelope == nil {
		return nil, newError(KindParse, "BEAP-CNT-006", "container has no envelope")
	}
	return c.Envelope, nil
}
