// ONNX Runtime C API bindings, scoped to this package's own needs: a
// process-wide environment, a loaded model session, and float32 tensors for
// the prefill/step/encoder/embed_tokens graphs Backend drives. Adapted from
// the teacher's generic pkg/onnx wrapper (which exposed Env/Session/Tensor
// for arbitrary speaker-embedding and denoising models); this rewrite keeps
// the cgo call shapes but drops the baked-in model registry and renames the
// exported surface down to package-private types, since onnxmodel is ORT's
// only caller here.
//
// # Dynamic Linking
//
// ONNX Runtime is dynamically linked (.dylib/.so) via CGo.
//
// # Thread Safety
//
// ortEnv is safe for concurrent use. ortSession.Run is thread-safe (ONNX
// Runtime uses internal locking).
package onnxmodel

/*
#include <onnxruntime_c_api.h>
#include <stdlib.h>
#include <string.h>

// Helper: get the ORT API pointer.
static const OrtApi* ort_api() {
    return OrtGetApiBase()->GetApi(ORT_API_VERSION);
}

// Helper: create environment.
static OrtStatus* ort_create_env(const OrtApi* api, const char* name, OrtEnv** out) {
    return api->CreateEnv(ORT_LOGGING_LEVEL_WARNING, name, out);
}

// Helper: create session options.
static OrtStatus* ort_create_session_options(const OrtApi* api, OrtSessionOptions** out) {
    return api->CreateSessionOptions(out);
}

// Helper: create session from memory.
static OrtStatus* ort_create_session_from_memory(const OrtApi* api, OrtEnv* env,
    const void* model_data, size_t model_data_len, OrtSessionOptions* opts, OrtSession** out) {
    return api->CreateSessionFromArray(env, model_data, model_data_len, opts, out);
}

// Helper: create tensor with float data.
static OrtStatus* ort_create_tensor_float(const OrtApi* api, OrtMemoryInfo* info,
    float* data, size_t data_len, int64_t* shape, size_t shape_len, OrtValue** out) {
    return api->CreateTensorWithDataAsOrtValue(info, data, data_len * sizeof(float),
        shape, shape_len, ONNX_TENSOR_ELEMENT_DATA_TYPE_FLOAT, out);
}

// Helper: create CPU memory info.
static OrtStatus* ort_create_cpu_memory_info(const OrtApi* api, OrtMemoryInfo** out) {
    return api->CreateCpuMemoryInfo(OrtArenaAllocator, OrtMemTypeDefault, out);
}

// Helper: run session.
static OrtStatus* ort_run(const OrtApi* api, OrtSession* session,
    const char** input_names, const OrtValue* const* inputs, size_t num_inputs,
    const char** output_names, size_t num_outputs, OrtValue** outputs) {
    return api->Run(session, NULL, input_names, inputs, num_inputs,
        output_names, num_outputs, outputs);
}

// Helper: get tensor float data.
static OrtStatus* ort_get_tensor_float_data(const OrtApi* api, OrtValue* value, float** out) {
    return api->GetTensorMutableData(value, (void**)out);
}

// Helper: get tensor shape info.
static OrtStatus* ort_get_tensor_shape(const OrtApi* api, OrtValue* value,
    int64_t* shape, size_t shape_len) {
    OrtTensorTypeAndShapeInfo* info;
    OrtStatus* status = api->GetTensorTypeAndShape(value, &info);
    if (status) return status;
    status = api->GetDimensions(info, shape, shape_len);
    api->ReleaseTensorTypeAndShapeInfo(info);
    return status;
}

// Helper: get tensor shape dimension count.
static OrtStatus* ort_get_tensor_ndim(const OrtApi* api, OrtValue* value, size_t* ndim) {
    OrtTensorTypeAndShapeInfo* info;
    OrtStatus* status = api->GetTensorTypeAndShape(value, &info);
    if (status) return status;
    status = api->GetDimensionsCount(info, ndim);
    api->ReleaseTensorTypeAndShapeInfo(info);
    return status;
}

// Helper: get error message.
static const char* ort_error_message(const OrtApi* api, OrtStatus* status) {
    return api->GetErrorMessage(status);
}

// Helper: release status.
static void ort_release_status(const OrtApi* api, OrtStatus* status) {
    api->ReleaseStatus(status);
}

// Release helpers.
static void ort_release_env(const OrtApi* api, OrtEnv* env) { api->ReleaseEnv(env); }
static void ort_release_session(const OrtApi* api, OrtSession* s) { api->ReleaseSession(s); }
static void ort_release_session_options(const OrtApi* api, OrtSessionOptions* o) { api->ReleaseSessionOptions(o); }
static void ort_release_memory_info(const OrtApi* api, OrtMemoryInfo* i) { api->ReleaseMemoryInfo(i); }
static void ort_release_value(const OrtApi* api, OrtValue* v) { api->ReleaseValue(v); }
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"
)

// api returns the global ORT API pointer.
func api() *C.OrtApi {
	return C.ort_api()
}

// checkStatus converts an OrtStatus to a Go error.
func checkStatus(status *C.OrtStatus) error {
	if status == nil {
		return nil
	}
	msg := C.GoString(C.ort_error_message(api(), status))
	C.ort_release_status(api(), status)
	return fmt.Errorf("onnxmodel: %s", msg)
}

// --------------------------------------------------------------------------
// ortEnv
// --------------------------------------------------------------------------

// ortEnv is the ONNX Runtime environment. Create one per Backend.
type ortEnv struct {
	env *C.OrtEnv
}

// newOrtEnv creates a new ONNX Runtime environment.
func newOrtEnv(name string) (*ortEnv, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	var env *C.OrtEnv
	if err := checkStatus(C.ort_create_env(api(), cName, &env)); err != nil {
		return nil, err
	}

	e := &ortEnv{env: env}
	runtime.SetFinalizer(e, (*ortEnv).Close)
	return e, nil
}

// NewSession creates a session from in-memory ONNX model data.
func (e *ortEnv) NewSession(modelData []byte) (*ortSession, error) {
	if len(modelData) == 0 {
		return nil, fmt.Errorf("onnxmodel: empty model data")
	}

	var opts *C.OrtSessionOptions
	if err := checkStatus(C.ort_create_session_options(api(), &opts)); err != nil {
		return nil, err
	}
	defer C.ort_release_session_options(api(), opts)

	var session *C.OrtSession
	if err := checkStatus(C.ort_create_session_from_memory(
		api(), e.env,
		unsafe.Pointer(&modelData[0]), C.size_t(len(modelData)),
		opts, &session,
	)); err != nil {
		return nil, err
	}

	s := &ortSession{session: session, pinned: modelData}
	runtime.SetFinalizer(s, (*ortSession).Close)
	return s, nil
}

// Close releases the environment.
func (e *ortEnv) Close() error {
	if e.env != nil {
		C.ort_release_env(api(), e.env)
		e.env = nil
		runtime.SetFinalizer(e, nil)
	}
	return nil
}

// --------------------------------------------------------------------------
// ortSession
// --------------------------------------------------------------------------

// ortSession holds a loaded ONNX model.
type ortSession struct {
	session *C.OrtSession
	pinned  any // prevents GC of model data
}

// Run executes inference with the given inputs and output names.
// Returns output tensors. The caller must close each output tensor.
func (s *ortSession) Run(inputNames []string, inputs []*ortTensor, outputNames []string) ([]*ortTensor, error) {
	if len(inputNames) != len(inputs) {
		return nil, fmt.Errorf("onnxmodel: input names/tensors length mismatch: %d vs %d", len(inputNames), len(inputs))
	}

	cInputNames := make([]*C.char, len(inputNames))
	for i, name := range inputNames {
		cInputNames[i] = C.CString(name)
		defer C.free(unsafe.Pointer(cInputNames[i]))
	}

	cInputs := make([]*C.OrtValue, len(inputs))
	for i, t := range inputs {
		cInputs[i] = t.value
	}

	cOutputNames := make([]*C.char, len(outputNames))
	for i, name := range outputNames {
		cOutputNames[i] = C.CString(name)
		defer C.free(unsafe.Pointer(cOutputNames[i]))
	}

	cOutputs := make([]*C.OrtValue, len(outputNames))

	status := C.ort_run(api(), s.session,
		&cInputNames[0], &cInputs[0], C.size_t(len(inputs)),
		&cOutputNames[0], C.size_t(len(outputNames)), &cOutputs[0],
	)
	if err := checkStatus(status); err != nil {
		return nil, err
	}

	outputs := make([]*ortTensor, len(outputNames))
	for i, val := range cOutputs {
		outputs[i] = &ortTensor{value: val, owned: true}
		runtime.SetFinalizer(outputs[i], (*ortTensor).Close)
	}
	return outputs, nil
}

// Close releases the session.
func (s *ortSession) Close() error {
	if s.session != nil {
		C.ort_release_session(api(), s.session)
		s.session = nil
		runtime.SetFinalizer(s, nil)
	}
	return nil
}

// --------------------------------------------------------------------------
// ortTensor
// --------------------------------------------------------------------------

// ortTensor is an N-dimensional float32 tensor (OrtValue).
type ortTensor struct {
	value  *C.OrtValue
	pinned any  // prevents GC of external data
	owned  bool // if true, Close releases the OrtValue
}

// newOrtTensor creates a float32 tensor with the given shape and data.
// The data slice must remain valid for the lifetime of the tensor.
func newOrtTensor(shape []int64, data []float32) (*ortTensor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("onnxmodel: empty tensor data")
	}

	total := int64(1)
	for _, d := range shape {
		total *= d
	}
	if int64(len(data)) < total {
		return nil, fmt.Errorf("onnxmodel: tensor data too short: got %d, need %d", len(data), total)
	}

	var memInfo *C.OrtMemoryInfo
	if err := checkStatus(C.ort_create_cpu_memory_info(api(), &memInfo)); err != nil {
		return nil, err
	}
	defer C.ort_release_memory_info(api(), memInfo)

	var value *C.OrtValue
	if err := checkStatus(C.ort_create_tensor_float(
		api(), memInfo,
		(*C.float)(unsafe.Pointer(&data[0])),
		C.size_t(len(data)),
		(*C.int64_t)(unsafe.Pointer(&shape[0])),
		C.size_t(len(shape)),
		&value,
	)); err != nil {
		return nil, err
	}

	t := &ortTensor{value: value, pinned: data, owned: true}
	runtime.SetFinalizer(t, (*ortTensor).Close)
	return t, nil
}

// FloatData copies the tensor data into a new float32 slice.
func (t *ortTensor) FloatData() ([]float32, error) {
	var ptr *C.float
	if err := checkStatus(C.ort_get_tensor_float_data(api(), t.value, &ptr)); err != nil {
		return nil, err
	}

	var ndim C.size_t
	if err := checkStatus(C.ort_get_tensor_ndim(api(), t.value, &ndim)); err != nil {
		return nil, err
	}

	shape := make([]C.int64_t, int(ndim))
	if ndim > 0 {
		if err := checkStatus(C.ort_get_tensor_shape(api(), t.value, &shape[0], ndim)); err != nil {
			return nil, err
		}
	}

	total := 1
	for _, d := range shape {
		total *= int(d)
	}
	if total <= 0 {
		return nil, nil
	}

	out := make([]float32, total)
	C.memcpy(unsafe.Pointer(&out[0]), unsafe.Pointer(ptr), C.size_t(total*4))
	return out, nil
}

// Close releases the tensor.
func (t *ortTensor) Close() error {
	if t.value != nil && t.owned {
		C.ort_release_value(api(), t.value)
		t.value = nil
		runtime.SetFinalizer(t, nil)
	}
	return nil
}
