package crypto

import "testing"

func TestSignAndVerifySignatureRoundTrip(t *testing.T) {
	signer, err := GenerateLocalSigner()
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	msg := []byte("candidate block digest")
	sig, err := signer.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !signer.VerifySignature(signer.LocalAuthorityID(), msg, sig) {
		t.Fatal("expected signature to verify")
	}
	if signer.VerifySignature(signer.LocalAuthorityID(), []byte("tampered"), sig) {
		t.Fatal("expected signature over different message to fail")
	}
}

func TestVRFProveAndVerifyRoundTrip(t *testing.T) {
	signer, err := GenerateLocalSigner()
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	msg := []byte("epoch randomness || slot 7")
	output, proof, err := signer.VRFProve(msg)
	if err != nil {
		t.Fatalf("vrf prove: %v", err)
	}
	if !signer.VRFVerify(signer.LocalAuthorityID(), msg, output, proof) {
		t.Fatal("expected VRF output/proof to verify")
	}

	other, err := GenerateLocalSigner()
	if err != nil {
		t.Fatalf("generate other signer: %v", err)
	}
	if signer.VRFVerify(other.LocalAuthorityID(), msg, output, proof) {
		t.Fatal("expected verification under the wrong authority id to fail")
	}
}

func TestVRFProveIsDeterministic(t *testing.T) {
	signer, err := GenerateLocalSigner()
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	msg := []byte("fixed message")
	output1, proof1, _ := signer.VRFProve(msg)
	output2, proof2, _ := signer.VRFProve(msg)
	if output1 != output2 || proof1 != proof2 {
		t.Fatal("expected VRFProve to be deterministic for the same key and message")
	}
}

func TestNewLocalSignerRejectsWrongKeySizes(t *testing.T) {
	if _, err := NewLocalSigner(nil, nil); err == nil {
		t.Fatal("expected error constructing signer from empty keys")
	}
}
