// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

// Section 9 - Start-up

func (t *TPMContext) Startup(startupType StartupType) error {
	return t.RunCommand(CommandStartup, nil, &commandSpec{
		params: []interface{}{startupType}})
}

func (t *TPMContext) Shutdown(shutdownType StartupType) error {
	return t.RunCommand(CommandShutdown, nil, &commandSpec{
		params: []interface{}{shutdownType}})
}

// Section 10 - Testing

func (t *TPMContext) SelfTest(fullTest bool) error {
	full := uint8(0)
	if fullTest {
		full = 1
	}
	return t.RunCommand(CommandSelfTest, nil, &commandSpec{
		params: []interface{}{full}})
}

func (t *TPMContext) GetTestResult() (MaxBuffer, ResponseCode, error) {
	var outData MaxBuffer
	var testResult ResponseCode
	if err := t.RunCommand(CommandGetTestResult, nil, &commandSpec{
		respParams:          []interface{}{&outData, &testResult},
		respFirstParamSized: true,
	}); err != nil {
		return nil, 0, err
	}
	return outData, testResult, nil
}
