package tensorutil

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// DTypeForCode converts a serialized numeric type code (ONNX TensorProto
// numbering, as left in Cast attributes by the parser) to the canonical
// dtype enumeration.
func DTypeForCode(code int) (dtypes.DType, error) {
	switch code {
	case 1:
		return dtypes.Float32, nil
	case 2:
		return dtypes.Uint8, nil
	case 3:
		return dtypes.Int8, nil
	case 4:
		return dtypes.Uint16, nil
	case 5:
		return dtypes.Int16, nil
	case 6:
		return dtypes.Int32, nil
	case 7:
		return dtypes.Int64, nil
	case 9:
		return dtypes.Bool, nil
	case 10:
		return dtypes.Float16, nil
	case 11:
		return dtypes.Float64, nil
	case 12:
		return dtypes.Uint32, nil
	case 13:
		return dtypes.Uint64, nil
	case 14:
		return dtypes.Complex64, nil
	case 15:
		return dtypes.Complex128, nil
	case 16:
		return dtypes.BFloat16, nil
	default:
		return dtypes.InvalidDType, errors.Errorf("unsupported/unknown data type code %d", code)
	}
}
