// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

/*
Package tpm2 implements an authorization-session and key-management engine
for TPM 2.0 devices.

The lowest layer is TPMContext, which executes typed commands over a
Transport (see the linux and mssim subpackages for concrete transports).
Commands that operate on authorized entities take an AuthorizationDelegate,
which builds the command authorization area and verifies the response:
NewPasswordAuthorizationDelegate for plaintext password authorization, or
the delegate produced by an HMACSession or PolicySession for session-based
authorization with optional command and response parameter encryption.

On top of the command layer, Utility provides device provisioning (startup,
ownership, storage root and salting keys), RSA key creation, import and use,
PCR access and the NV space lifecycle.
*/
package tpm2
